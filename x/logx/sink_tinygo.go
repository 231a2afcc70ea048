//go:build tinygo

package logx

// Verbosity gates Debug and V on firmware builds.
var Verbosity = 0

func enabled(level int) bool { return level <= Verbosity }

func emit(sev severity, line string) {
	switch sev {
	case sevWarn:
		println("W", line)
	case sevError:
		println("E", line)
	default:
		println(line)
	}
}
