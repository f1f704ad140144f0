package webhook

type user struct {
	Login string `json:"login"`
}

// Payload is the subset of an issues or issue_comment delivery the
// workflows read.
type Payload struct {
	Action string `json:"action"`
	Issue  *struct {
		Number int64  `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		User   user   `json:"user"`
	} `json:"issue"`
	Comment *struct {
		Body string `json:"body"`
		User user   `json:"user"`
	} `json:"comment"`
	Repository *struct {
		FullName string `json:"full_name"`
		Owner    user   `json:"owner"`
	} `json:"repository"`
	Organization *user `json:"organization"`
	Installation *struct {
		ID int64 `json:"id"`
	} `json:"installation"`
}

func (p Payload) installationID() int64 {
	if p.Installation == nil {
		return 0
	}
	return p.Installation.ID
}
