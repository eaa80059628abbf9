// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	accountRegex = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Field limits.
const (
	MaxNickname     = 50
	MaxDesc         = 255
	MaxTitle        = 255
	MaxComment      = 1000
	MinPassword     = 6
	MaxPassword     = 64
	MaxPageSize     = 100
	DefaultPage     = 1
	DefaultPageSize = 10
)

// ValidateAccount checks the login handle: 1-16 letters, digits or underscores.
func ValidateAccount(account string) error {
	if !accountRegex.MatchString(account) {
		return fmt.Errorf("account must be 1-16 letters, digits or underscores")
	}
	return nil
}

// ValidatePassword checks the password length in bytes.
func ValidatePassword(password string) error {
	if len(password) < MinPassword {
		return fmt.Errorf("password must be at least %d characters long", MinPassword)
	}
	if len(password) > MaxPassword {
		return fmt.Errorf("password must not exceed %d characters", MaxPassword)
	}
	return nil
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if len(email) > 254 {
		return fmt.Errorf("email must not exceed 254 characters")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateNickname allows an empty nickname.
func ValidateNickname(nickname string) error {
	if utf8.RuneCountInString(nickname) > MaxNickname {
		return fmt.Errorf("nickname must not exceed %d characters", MaxNickname)
	}
	return nil
}

func ValidateDesc(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDesc {
		return fmt.Errorf("description must not exceed %d characters", MaxDesc)
	}
	return nil
}

// ValidateTitle requires a non-blank title.
func ValidateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if strings.TrimSpace(title) == "" || n > MaxTitle {
		return fmt.Errorf("title must be 1-%d characters", MaxTitle)
	}
	return nil
}

// ValidateComment requires 1-1000 characters of non-blank content.
func ValidateComment(content string) error {
	n := utf8.RuneCountInString(content)
	if strings.TrimSpace(content) == "" || n > MaxComment {
		return fmt.Errorf("comment must be 1-%d characters", MaxComment)
	}
	return nil
}

// Page clamps paging input and returns limit and offset.
func Page(pageNum, pageSize int) (limit, offset int) {
	if pageNum < 1 {
		pageNum = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return pageSize, (pageNum - 1) * pageSize
}
