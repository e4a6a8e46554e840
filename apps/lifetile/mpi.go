//go:build mpi

package main

import _ "github.com/RylanYancey/game-of-life-mpi/cmpi"
