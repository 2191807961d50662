// Package model defines the error taxonomy shared by the pqdag core packages.
//
// Every rejection a caller may want to branch on is a *Error carrying a stable
// Kind and RuleID. Error strings are for humans and may change.
package model
