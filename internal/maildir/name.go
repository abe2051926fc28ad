package maildir

import (
	"strconv"
	"strings"
)

const seenInfo = ":2,S"

// Name is the structured form of a delivered message's file name:
// "<account>-<uid>" for unseen messages and "<account>-<uid>:2,S" for seen
// ones.
type Name struct {
	Account string
	UID     uint32
	Seen    bool
}

func (n Name) String() string {
	s := n.Account + "-" + strconv.FormatUint(uint64(n.UID), 10)
	if n.Seen {
		s += seenInfo
	}
	return s
}

// ParseName is the inverse of Name.String. Flags other than S in the info
// part are accepted, since mail readers rewrite them.
func ParseName(file string) (Name, bool) {
	unique, info, hasInfo := strings.Cut(file, ":")
	var seen bool
	if hasInfo {
		flags, ok := strings.CutPrefix(info, "2,")
		if !ok {
			return Name{}, false
		}
		seen = strings.ContainsRune(flags, 'S')
	}

	i := strings.LastIndexByte(unique, '-')
	if i <= 0 {
		return Name{}, false
	}
	digits := unique[i+1:]
	if digits == "" || (len(digits) > 1 && digits[0] == '0') {
		return Name{}, false
	}
	uid, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return Name{}, false
	}
	return Name{Account: unique[:i], UID: uint32(uid), Seen: seen}, true
}
