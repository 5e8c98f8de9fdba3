package probe

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// matchBody asserts the configured JSON path against a probe response body.
// An empty expected value only requires the path to exist.
func matchBody(body []byte, path, want string) error {
	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return fmt.Errorf("body path %q not found", path)
	}
	if want != "" && result.String() != want {
		return fmt.Errorf("body path %q = %q, want %q", path, result.String(), want)
	}
	return nil
}
