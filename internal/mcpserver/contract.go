package mcpserver

// NamingScheme describes how archive files are named and how reports should
// be read. It is served as the keepsake://naming-scheme resource.
const NamingScheme = `# Keepsake Naming Scheme

Every downloaded asset lives directly in the download directory under a name
derived only from its manifest record.

## File names

` + "```" + `
YYYY-MM-DD_HH-MM-SS[-<suffix>].<ext>
` + "```" + `

- The timestamp is the manifest capture time in **UTC**, truncated to the second.
- ` + "`" + `<suffix>` + "`" + ` appears only when more than one record shares the same second.
  It is a bijective base-26 counter in manifest order: A, B, ..., Z, AA, AB, ...
- ` + "`" + `<ext>` + "`" + ` is ` + "`" + `jpg` + "`" + ` for images and ` + "`" + `mp4` + "`" + ` for videos. At download time the
  extension follows the resolved CDN URL; a fix renames the file to match the
  manifest media type.

## Reports

A discrepancy report compares one manifest record with the tags embedded in
its file. A report needs a fix when any of these flags is set:

1. **media_type** – the file extension disagrees with the manifest type.
2. **utc** – the embedded capture instant is absent or more than 10 seconds
   from the manifest time.
3. **latitude / longitude** – the embedded coordinate is absent, differs by
   more than 0.0001 degrees, or the manifest coordinate is exactly 0.
4. **offset** – the embedded UTC offset differs from the offset of the time zone
   at the manifest location (America/Denver when the location is unknown).

## Runs

- ` + "`" + `download` + "`" + ` runs record failures (expired or unreachable links).
- ` + "`" + `reconcile` + "`" + ` runs record reports and join failures (missing or
  unmanifested files).
- ` + "`" + `fix` + "`" + ` runs record reports and correction outcomes.
- ` + "`" + `watch` + "`" + ` runs record re-checks made while serving.
`
