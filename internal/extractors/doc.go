// Package extractors turns source files into ordered pages of text.
//
// Each sub-package handles one family of formats:
//
//   - plaintext: .txt and .md files, form feeds separate pages
//   - pdf: PDF files via poppler's pdftotext
//   - docx: Word documents, explicit page breaks separate pages
//   - html: HTML documents as a single page
//
// The Registry selects an extractor by file extension and is what the
// indexer depends on.
package extractors
