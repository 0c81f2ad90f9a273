package domain

import (
	"regexp"
	"strings"
)

const InstitutionalDomain = "@uvg.edu.gt"

// studentEmail is 3 letters (surname) + 5-7 digit carnet at the institutional domain.
var studentEmail = regexp.MustCompile(`^[a-zA-Z]{3}(\d{5,7})@uvg\.edu\.gt$`)

func IsInstitutionalEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), InstitutionalDomain)
}

func IsStudentEmail(email string) bool {
	return studentEmail.MatchString(strings.TrimSpace(email))
}

// DetermineRole derives the role from the shape of an institutional email.
// It is only called at registration; the stored role is never re-derived.
func DetermineRole(email string) Role {
	if IsStudentEmail(email) {
		return RoleStudent
	}
	return RoleTeacher
}

// ExtractCarnet returns the student number embedded in a student email.
func ExtractCarnet(email string) (string, bool) {
	m := studentEmail.FindStringSubmatch(strings.TrimSpace(email))
	if m == nil {
		return "", false
	}
	return m[1], true
}
