package version

import "fmt"

// validCharacters is a list of characters valid in the appBuild string.
const validCharacters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0
)

// appBuild is defined as a variable so it can be overridden during the build
// process with '-ldflags "-X github.com/eccnet/eccd/version.appBuild=foo"' if
// needed. It MUST only contain characters from validCharacters.
var appBuild string

var version = "" // string used for memoization of version

// Version returns the application version as a properly formed string per
// the semantic versioning 2.0.0 spec (http://semver.org/).
func Version() string {
	if version == "" {
		// Start with the major, minor, and patch versions.
		version = fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)

		// Append build metadata if there is any. The build metadata
		// string is not appended if it contains invalid characters.
		if appBuild != "" {
			checkAppBuild(appBuild)

			version = fmt.Sprintf("%s-%s", version, appBuild)
		}
	}

	return version
}

// checkAppBuild verifies that appBuild does not contain any characters
// outside of validCharacters, and panics otherwise.
func checkAppBuild(appBuild string) {
	for _, r := range appBuild {
		wasFound := false
		for _, validChar := range validCharacters {
			if r == validChar {
				wasFound = true
				break
			}
		}
		if !wasFound {
			panic(fmt.Errorf("appBuild string (%s) contains forbidden characters. Only alphanumeric characters and dashes are allowed", appBuild))
		}
	}
}
