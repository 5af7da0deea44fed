package mcpserver

// RulesContract describes how mdnorm rewrites documents so that LLM clients
// can write Markdown that survives a run unchanged.
const RulesContract = `# mdnorm Normalisation Rules

mdnorm rewrites links and wiki references in Markdown documents and keeps the
` + "`tags`" + ` frontmatter field in sync with known topics.

## Inline links ` + "`[text](target)`" + `

1. If ` + "`text`" + ` is a known alias label, the link becomes ` + "`[text](alias-url)`" + `.
2. Empty targets are dropped: ` + "`[text]()`" + ` becomes ` + "`text`" + `.
3. Targets starting with ` + "`/`" + `, ` + "`#`" + `, ` + "`http://`" + ` or ` + "`https://`" + ` are kept.
4. Relative targets are kept when the file exists, relative to the document
   or to the corpus root. Anything else is dropped to its text.
5. Images ` + "`![alt](src)`" + ` are never touched, even with an empty ` + "`src`" + `
   or alt text that matches an alias label.
6. Generated targets are percent-encoded, so ` + "`(`" + `, ` + "`)`" + ` and spaces in
   document paths or alias URLs appear as ` + "`%28`" + `, ` + "`%29`" + ` and ` + "`%20`" + `.

## Wiki references ` + "`[[Name]]`" + `

1. A name matching an alias label becomes ` + "`[Name](alias-url)`" + `.
2. A name matching a document's filename stem becomes
   ` + "`[Name](./path/to/doc.md)`" + `. ` + "`[[Name#Heading|Shown]]`" + ` links to the
   slugified heading with ` + "`Shown`" + ` as the text.
3. Unknown names are left exactly as written.

## Tags

Every known topic that appears in the body is added to the ` + "`tags`" + ` list in
frontmatter. Existing tags and all other keys are preserved; a frontmatter
block is created when the document has none.

## Example

` + "```" + `markdown
See [[b]] and [empty]().

All about robotics.
` + "```" + `

becomes

` + "```" + `markdown
---
tags:
  - robotics
---
See [b](./posts/b.md) and empty.

All about robotics.
` + "```" + `
`
