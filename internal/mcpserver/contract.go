package mcpserver

// FrontmatterContract describes how note front matter becomes record fields
// and how record edits are written back.
const FrontmatterContract = `# Front Matter Format

Every note in a project is one record. Its fields come from the YAML front
matter block at the top of the note.

` + "```" + `markdown
---
status: doing            # string
points: 3                # number
done: false              # boolean
due: 2024-06-01          # date (ISO-8601 date or datetime)
owner: "[[Alice]]"       # link to another note
tags: [work, q3]         # list
notes:                   # empty value
---

Body text is never touched by record edits.
` + "```" + `

## Field types

1. **Types are detected** from the values across all records of a project.
   A field is a number only if every non-empty value is a number, a date only
   if every non-empty value parses as a date, and so on. Mixed fields are strings.
2. **` + "`" + `path` + "`" + ` and ` + "`" + `name` + "`" + `** are derived from the
   file location. They are read-only and never written to front matter.
3. **Missing vs. empty.** A key absent from the front matter is missing. A key
   present with no value (` + "`" + `notes:` + "`" + `) is empty. Both display as blank;
   only empty values are kept when a record is saved.

## Editing records

- ` + "`" + `update_record` + "`" + ` merges the given values into the front matter.
  Keys you do not pass are left unchanged, including their comments and order.
- Pass ` + "`" + `null` + "`" + ` to empty a field. There is no way to delete a key
  through a record edit.
- Dates are written as ` + "`" + `YYYY-MM-DD` + "`" + ` (or with a time when one is set).
- Links are written as ` + "`" + `"[[Target]]"` + "`" + `.
- Notes whose front matter is malformed YAML are refused, never rewritten.
- Projects backed by a search query are read-only.
`
