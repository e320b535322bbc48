//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GridETL.
//
// GridETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GridETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GridETL. If not, see https://www.gnu.org/licenses/.

package model

import (
	"fmt"
	"strings"
)

// LoadProfile is a standard load profile key.
type LoadProfile string

// Standard load profiles.
const (
	LoadProfileH0     LoadProfile = "h0"
	LoadProfileG0     LoadProfile = "g0"
	LoadProfileG1     LoadProfile = "g1"
	LoadProfileG2     LoadProfile = "g2"
	LoadProfileG3     LoadProfile = "g3"
	LoadProfileG4     LoadProfile = "g4"
	LoadProfileG5     LoadProfile = "g5"
	LoadProfileG6     LoadProfile = "g6"
	LoadProfileL0     LoadProfile = "l0"
	LoadProfileL1     LoadProfile = "l1"
	LoadProfileL2     LoadProfile = "l2"
	LoadProfileRandom LoadProfile = "random"
	LoadProfileNone   LoadProfile = "no_load_profile"
)

var loadProfiles = map[string]LoadProfile{}

func init() {
	for _, lp := range []LoadProfile{
		LoadProfileH0, LoadProfileG0, LoadProfileG1, LoadProfileG2, LoadProfileG3,
		LoadProfileG4, LoadProfileG5, LoadProfileG6, LoadProfileL0, LoadProfileL1,
		LoadProfileL2, LoadProfileRandom, LoadProfileNone,
	} {
		loadProfiles[string(lp)] = lp
	}
}

// EnumKey implements Enum.
func (lp LoadProfile) EnumKey() string { return string(lp) }

// ParseLoadProfile resolves a key case-insensitively. Blank input means no load profile.
func ParseLoadProfile(key string) (LoadProfile, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return LoadProfileNone, nil
	}
	lp, ok := loadProfiles[key]
	if !ok {
		return "", fmt.Errorf("unknown load profile %q", key)
	}
	return lp, nil
}
