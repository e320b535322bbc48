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

import "github.com/google/uuid"

// RawGrid is the set of input entities making up one grid.
type RawGrid struct {
	Operators []*OperatorInput
	LineTypes []*LineTypeInput
	Nodes     []*NodeInput
	Lines     []*LineInput
	Switches  []*SwitchInput
	Loads     []*LoadInput
}

// Entities returns all entities of the grid, referenced entities before their referrers.
func (g *RawGrid) Entities() []Entity {
	var out []Entity
	for _, e := range g.Operators {
		out = append(out, e)
	}
	for _, e := range g.LineTypes {
		out = append(out, e)
	}
	for _, e := range g.Nodes {
		out = append(out, e)
	}
	for _, e := range g.Lines {
		out = append(out, e)
	}
	for _, e := range g.Switches {
		out = append(out, e)
	}
	for _, e := range g.Loads {
		out = append(out, e)
	}
	return out
}

// Node returns the node with the given UUID.
func (g *RawGrid) Node(id uuid.UUID) (*NodeInput, bool) {
	for _, n := range g.Nodes {
		if n.UUID == id {
			return n, true
		}
	}
	return nil, false
}

// Add appends e to the matching collection. Unknown entity kinds are reported as false.
func (g *RawGrid) Add(e Entity) bool {
	switch v := e.(type) {
	case *OperatorInput:
		g.Operators = append(g.Operators, v)
	case *LineTypeInput:
		g.LineTypes = append(g.LineTypes, v)
	case *NodeInput:
		g.Nodes = append(g.Nodes, v)
	case *LineInput:
		g.Lines = append(g.Lines, v)
	case *SwitchInput:
		g.Switches = append(g.Switches, v)
	case *LoadInput:
		g.Loads = append(g.Loads, v)
	default:
		return false
	}
	return true
}
