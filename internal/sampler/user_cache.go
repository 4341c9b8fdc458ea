package sampler

import (
	"os/user"
	"strconv"
)

const unknownUser = "<no name>"

// userCache memoizes uid to username lookups. The sampler resolves the same
// handful of uids thousands of times per minute.
type userCache struct {
	names map[int32]string
}

func newUserCache() *userCache {
	return &userCache{names: make(map[int32]string)}
}

// resolve returns the real username and, only when the effective uid differs
// from the real uid, the effective username.
func (uc *userCache) resolve(realUID, effectiveUID int32) (string, string) {
	realName := uc.lookup(realUID)
	if effectiveUID == realUID {
		return realName, ""
	}
	return realName, uc.lookup(effectiveUID)
}

func (uc *userCache) lookup(uid int32) string {
	if name, ok := uc.names[uid]; ok {
		return name
	}
	name := unknownUser
	if u, err := user.LookupId(strconv.Itoa(int(uid))); err == nil {
		name = u.Username
	}
	uc.names[uid] = name
	return name
}
