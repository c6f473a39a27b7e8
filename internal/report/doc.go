// Package report renders run reports.
//
// Three formats are available: a plain text summary for terminals, a
// Markdown document for sharing, and JSON for other tools. All writers
// implement Writer and can be combined with MultiWriter.
package report
