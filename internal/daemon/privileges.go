// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build unix

package daemon

import (
	"fmt"
	"os/user"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Credentials are the numeric IDs the daemon runs as.
type Credentials struct {
	UID int
	GID int
}

// LookupCredentials resolves user and group names (or numeric IDs).
//
// Empty group selects the primary group of the user.
func LookupCredentials(userName, groupName string) (Credentials, error) {
	u, err := user.Lookup(userName)
	if err != nil {
		if u, err = user.LookupId(userName); err != nil {
			return Credentials{}, fmt.Errorf("unknown user %q: %w", userName, err)
		}
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Credentials{}, fmt.Errorf("non-numeric uid %q", u.Uid)
	}

	gidStr := u.Gid

	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			if g, err = user.LookupGroupId(groupName); err != nil {
				return Credentials{}, fmt.Errorf("unknown group %q: %w", groupName, err)
			}
		}

		gidStr = g.Gid
	}

	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return Credentials{}, fmt.Errorf("non-numeric gid %q", gidStr)
	}

	return Credentials{UID: uid, GID: gid}, nil
}

// DropPrivileges switches the process to the credentials.
//
// Supplementary groups are cleared and the group is changed before the user,
// as the latter loses the right to change the former.
func DropPrivileges(creds Credentials, logger *zap.Logger) error {
	if unix.Getuid() == creds.UID && unix.Getgid() == creds.GID {
		return nil
	}

	if err := unix.Setgroups([]int{creds.GID}); err != nil {
		return fmt.Errorf("failed to set supplementary groups: %w", err)
	}

	if err := unix.Setgid(creds.GID); err != nil {
		return fmt.Errorf("failed to set gid %d: %w", creds.GID, err)
	}

	if err := unix.Setuid(creds.UID); err != nil {
		return fmt.Errorf("failed to set uid %d: %w", creds.UID, err)
	}

	logger.Info("dropped privileges", zap.Int("uid", creds.UID), zap.Int("gid", creds.GID))

	return nil
}
