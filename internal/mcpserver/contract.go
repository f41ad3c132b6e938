package mcpserver

// ConventionsURI is the resource URI of the document conventions.
const ConventionsURI = "gts://conventions"

// Conventions describes how GTS documents in the workspace are written and
// how their problems are reported.
const Conventions = `# GTS Document Conventions

Workspace documents are JSON files (` + "`.json`, `.jsonc`, `.gts`" + `). Comments
and trailing commas are accepted.

## Identifiers

A GTS identifier is ` + "`gts.`" + ` followed by one or more segments joined by ` + "`~`" + `.
Each segment is ` + "`vendor.package.namespace.type.vMAJOR[.MINOR]`" + ` in lowercase.

- A trailing ` + "`~`" + ` names a type (schema): ` + "`gts.acme.shop.orders.order.v1~`" + `
- Without it the identifier names an instance: ` + "`gts.acme.shop.orders.order.v1.0`" + `
- Inside ` + "`$id`" + ` and ` + "`$ref`" + ` identifiers are written as URIs: ` + "`gts://gts.acme.shop.orders.order.v1~`" + `

## Entities

A file holds one entity or a top-level array of entities.

- **Schema**: carries ` + "`$schema`" + ` or a type identifier in ` + "`$id`" + `.
- **Object**: carries an identifier in ` + "`$id`" + `, ` + "`gtsId`" + ` or ` + "`id`" + ` and declares
  its schema in ` + "`type`" + ` or ` + "`gtsType`" + `. A chained identifier implies its schema.

Any string value holding a GTS identifier is a reference and must resolve to a
registered entity.

## Diagnostics

Each validation error is reported with a zero-based line/character range.
Characters are counted in UTF-16 code units. Errors that cannot be placed are
reported at the start of the document with ` + "`located: false`" + `.

Call ` + "`validate_document`" + ` before ` + "`write_document`" + ` to check unsaved content.
`
