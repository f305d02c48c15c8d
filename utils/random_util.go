package utils

import (
	"github.com/google/uuid"
)

// GetUUID 会话id
func GetUUID() string {
	u1, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return u1.String()
}
