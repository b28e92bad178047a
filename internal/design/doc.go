// Package design owns design requests: the presentation properties of a book,
// its images, and the orchestration that submits the request to the engine and
// follows its progress.
//
// Request.Submit merges property edits, persists the book, and starts exactly
// one tracking session per request. A cross-process file lock keeps a second
// mbclient from tracking the same book at the same time. The final galleon
// artifact is only handed out once completion has been observed.
package design
