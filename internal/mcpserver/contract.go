package mcpserver

// OutputFormatContract describes how query_contacts matches and renders
// records, so LLM consumers can pick the right arguments.
const OutputFormatContract = `# vcq Output Formats

Every contact address becomes one record of three fields: mail, name, description.
The description is the contact's NOTE with empty lines dropped and the remaining
lines joined with "; ".

## Matching

The pattern is always matched against the listing line

` + "```" + `
mail<TAB>name<TAB>description
` + "```" + `

regardless of the output mode. Matching ignores case. With ` + "`" + `regex` + "`" + ` set the
pattern is a regular expression (RE2 syntax); otherwise it is a plain substring.
An empty pattern matches every record.

## Modes

- ` + "`" + `listing` + "`" + ` (default): the listing line itself.
- ` + "`" + `address-header` + "`" + `: an RFC 5322 address, e.g. ` + "`" + `Jane Doe <jane@x.com>` + "`" + `.
  Contacts without a name render as ` + "`" + `<jane@x.com>` + "`" + `.

## Ordering

Records are sorted case-insensitively by (mail, name, description), or by
(name, mail, description) with ` + "`" + `sort: "name"` + "`" + `. With ` + "`" + `starting_first` + "`" + ` the
records whose listing line starts with the pattern come first.

## Addresses

By default only the first address of each contact is returned. Set
` + "`" + `all_addresses` + "`" + ` to get one record per address. Identical records from different
directories are returned once.
`
