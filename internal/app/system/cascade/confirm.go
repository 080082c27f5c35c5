package cascade

import (
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
)

// Confirmation is the second stage of a destructive request.
type Confirmation struct {
	Confirm bool   `json:"confirm"`
	Phrase  string `json:"confirmationPhrase"`
}

var phrases = map[Root]string{
	RootGroup:   "DELETE GROUP",
	RootProject: "DELETE PROJECT",
	RootEvent:   "DELETE EVENT",
	RootCompany: "DELETE COMPANY",
	RootPost:    "DELETE",
}

// Phrase returns the exact text a caller must send to delete a root.
func Phrase(root Root) string {
	return phrases[root]
}

// Check validates c for root. The match is exact: no trimming, no case folding.
func (c Confirmation) Check(root Root) error {
	want, ok := phrases[root]
	if !ok {
		return apperr.Validation("unknown cascade root %q", root)
	}
	if !c.Confirm {
		return apperr.Validation("deleting a %s requires confirm=true", root)
	}
	if c.Phrase != want {
		return apperr.Validation("confirmation phrase must be %q", want)
	}
	return nil
}
