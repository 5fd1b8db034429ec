// Package consolidate merges case-variant vector namespaces.
//
// Namespaces such as "Leadership" and "leadership" split one topic across
// two indexes. The Service finds every namespace whose lower-case form also
// exists, copies its vectors page by page into the lower-case namespace and
// deletes the source only when every page was written. A dry run lists the
// same pages and reports the counts a real run would move.
package consolidate
