// Package config loads the langsync configuration: repository naming
// (organisation, main language, repository suffix), the working copy root,
// branch names, the pull request hosting platform, and reviewer selection.
// Configuration is read from YAML once at start-up and passed by value to the
// components that need it.
package config
