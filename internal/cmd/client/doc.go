// Package client contains the Cobra commands of the buildlog CLI: local
// stream inspection and the remote build commands.
package client
