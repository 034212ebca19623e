//go:build windows

package preflight

// checkFileDescriptors has no rlimit to read on Windows.
func checkFileDescriptors(required int) Check {
	return Check{
		Name:    "file_descriptors",
		Passed:  true,
		Warning: true,
		Message: "not applicable on windows",
	}
}
