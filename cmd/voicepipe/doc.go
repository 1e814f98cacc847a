// Command voicepipe is the CLI companion to voicepiped: it runs the pipeline
// on demand, inspects run history, manages configuration, and tests the
// notification channel.
package main
