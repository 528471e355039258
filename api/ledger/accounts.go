package ledger

import "strings"

// DeriveAccountLabel builds the display label for a resolved bank account by
// joining bank, branch and account ids. When only the account id is present
// it stands alone.
func DeriveAccountLabel(tags AccountTags) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{tags.BankID, tags.BranchID, tags.AcctID} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, " / ")
}
