package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow when reading or writing notes.
const NoteFormatContract = `# Noteban Note Format Contract

Every Markdown note stored in noteban follows this structure.

## Structure

` + "```" + `markdown
---
id: 4c3b2a1d-...                    # Stable UUID, assigned on creation
title: Human-readable title         # REQUIRED – display name everywhere
created: 2025-01-15T09:30:00Z       # RFC 3339 timestamp, set on creation
modified: 2025-01-20T14:00:00Z      # RFC 3339 timestamp, bumped on every edit
date: 2025-01-20                    # OPTIONAL – plain date the note refers to
column: todo                        # Board column the note sits in
tags:                               # OPTIONAL – YAML list of declared tags
  - tag-one
  - tag-two
order: 0                            # Sort position inside the column
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory.** The opening ` + "`" + `---` + "`" + ` fence is the first
   thing in the file; the closing fence sits on its own line.
2. **Do not edit ` + "`" + `id` + "`" + `, ` + "`" + `created` + "`" + ` or ` + "`" + `modified` + "`" + ` by hand.**
   The server owns them.
3. **Tags** are lowercase; letters, digits, ` + "`" + `-` + "`" + ` and ` + "`" + `_` + "`" + ` only.
4. **Inline tags** may appear in the body as ` + "`" + `#tag` + "`" + ` and are indexed
   separately from the frontmatter list. Tags inside code blocks or inline
   code are ignored.
5. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes. The filename
   is derived from the title; renaming happens through a title change.
6. **Attachments** for a note live next to it in ` + "`" + `<note-stem>.assets/` + "`" + `.
   That directory moves and is deleted together with the note.

## Example

` + "```" + `markdown
---
id: 9f1c6e84-2b7d-4f1e-a8c3-5d2e7b9a0c4f
title: Weekly standup
created: 2025-01-20T09:00:00Z
modified: 2025-01-20T09:45:00Z
date: 2025-01-20
column: doing
tags:
  - meeting-notes
order: 2
---

Attendees: Alice, Bob.

Discussed the #roadmap and the open #hiring question.
` + "```" + `
`
