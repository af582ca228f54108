// Package extract wraps the language-model metadata extraction service. It
// speaks a chat-completions style API and returns bibliographic fields plus a
// 0-100 confidence score for cached page content.
package extract
