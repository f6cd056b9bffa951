package version

// Version is set at build time via -ldflags "-X centinela/version.Version=<tag>".
var Version = "dev"
