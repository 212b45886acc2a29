// Package update tracks the upstream yt-dlp release feed and installs
// replacement binaries.
//
// It covers three concerns:
//   - ordering yt-dlp version identifiers (stable "Y.M.D" and nightly "nightly@Y.M.D.HHMMSS")
//   - querying and caching the latest release tag
//   - downloading the platform asset over the bundled copy
//
// Example usage:
//
//	checker := update.NewChecker()
//	latest, err := checker.LatestVersion(ctx)
//	if err != nil {
//	    // handle error
//	}
//	fresh, err := update.Compare(installed, latest)
package update
