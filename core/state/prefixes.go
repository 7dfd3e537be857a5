package state

import "fmt"

var accountPrefix = []byte("accounts/")

func accountKey(addr []byte) []byte {
	return []byte(fmt.Sprintf("%s%x", accountPrefix, addr))
}
