package workflow

import "regexp"

var (
	elevationKeywords = regexp.MustCompile(`(?i)request|elevate|elevation`)
	approvalPattern   = regexp.MustCompile(`(?i)approve|👍`)
)

// IsElevationRequest reports whether an issue's title or body asks for
// elevation. Empty fields never match.
func IsElevationRequest(title, body string) bool {
	return elevationKeywords.MatchString(title) || elevationKeywords.MatchString(body)
}

func IsApproval(body string) bool {
	return approvalPattern.MatchString(body)
}
