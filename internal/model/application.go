package model

import (
	"errors"
	"fmt"
)

// Affiliation describes how an applicant relates to the university.
type Affiliation string

const (
	AffiliationCurrentStudent Affiliation = "current-student"
	AffiliationAlumni         Affiliation = "alumni"
	AffiliationFaculty        Affiliation = "faculty"
	AffiliationResearcher     Affiliation = "researcher"
	AffiliationPartner        Affiliation = "partner"
	AffiliationOther          Affiliation = "other"
)

// Role describes what an applicant wants to do in the program.
type Role string

const (
	RoleFounder        Role = "founder"
	RoleStudentBuilder Role = "student-builder"
	RoleAlumniMentor   Role = "alumni-mentor"
	RoleAdvisor        Role = "advisor"
	RoleInvestor       Role = "investor"
	RolePartner        Role = "partner"
	RoleOther          Role = "other"
)

var (
	ErrUnknownAffiliation = errors.New("unknown_affiliation")
	ErrUnknownRole        = errors.New("unknown_role")
)

// ParseAffiliation returns the Affiliation named by raw. Matching is exact.
func ParseAffiliation(raw string) (Affiliation, error) {
	affiliation := Affiliation(raw)
	switch affiliation {
	case AffiliationCurrentStudent, AffiliationAlumni, AffiliationFaculty, AffiliationResearcher, AffiliationPartner, AffiliationOther:
		return affiliation, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAffiliation, raw)
	}
}

// ParseRole returns the Role named by raw. Matching is exact.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	switch role {
	case RoleFounder, RoleStudentBuilder, RoleAlumniMentor, RoleAdvisor, RoleInvestor, RolePartner, RoleOther:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}
