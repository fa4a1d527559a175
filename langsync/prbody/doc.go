// Package prbody renders the title and body of sync pull requests.
//
// Templates live in templates/ and are embedded at build time. They use
// valyala/fasttemplate "{{name}}" tags. The checklist line format
// " * [ ] [<file>](/<org>/<main repo>/commits/<branch>/<file>)" is parsed by
// downstream tooling and must not change.
package prbody
