package mcpserver

// AttachmentFormatContract describes attachment kinds, their stored bodies
// and how documents refer to them.
const AttachmentFormatContract = `# Iceberg Attachment Format Contract

Attachments are stored outside documents. Each one is a pair of files in the
attachment folder, named after its key:

- ` + "`" + `<KEY>` + "`" + `: the content
- ` + "`" + `<KEY>.json` + "`" + `: the metadata

Keys are upper-case UUIDs (e.g. ` + "`" + `0F8FAD5B-D9CB-469F-A165-70867728950E` + "`" + `). They are
assigned on save and never reused. Attachments are immutable: to change one,
save a new attachment and update the reference.

## Referencing from documents

Put the reference on its own line, under the heading it belongs to:

` + "```" + `org
* Trip to Lisbon
#+ATTACHMENT:image=0F8FAD5B-D9CB-469F-A165-70867728950E
` + "```" + `

The kind in the reference MUST match the attachment's kind.

## Kinds and bodies

| kind     | content                                             |
|----------|-----------------------------------------------------|
| text     | UTF-8 text, stored verbatim                         |
| link     | JSON ` + "`" + `{"link": "https://…", "title": "…"}` + "`" + `              |
| location | JSON ` + "`" + `{"latitude": 38.72, "longitude": -9.14}` + "`" + `          |
| image    | JPEG (or other raster image) bytes                  |
| sketch   | PNG bytes                                           |
| audio    | MPEG-4 audio bytes                                  |
| video    | QuickTime video bytes                               |

Binary kinds cannot be passed through ` + "`" + `save_attachment` + "`" + `; use
` + "`" + `attach_from_url` + "`" + ` with an http(s) URL or a base64 data URI instead.

## Metadata

` + "```" + `json
{
  "url": "<KEY>",
  "date": 1709286600,
  "type": "image",
  "description": "Harbour at dusk",
  "key": "<KEY>"
}
` + "```" + `

` + "`" + `date` + "`" + ` is whole seconds since the Unix epoch. Metadata is written after the
content, so a metadata file without content means an interrupted save; the
sweep removes such leftovers.
`
