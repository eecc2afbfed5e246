package xid

import (
	"fmt"

	"github.com/rs/xid"
)

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, xid.New().String())
}
