package main

import (
	builder "github.com/M-Tarantino/Sasquatch-Universal-Builder/internal/builder"
)

func main() {
	builder.Main()
}
