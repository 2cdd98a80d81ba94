package ir

// Version is the coordinator version reported by the CLI.
const Version = "0.1.0"
