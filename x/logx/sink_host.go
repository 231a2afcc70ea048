//go:build !tinygo

package logx

import "github.com/golang/glog"

func enabled(level int) bool { return bool(glog.V(glog.Level(level))) }

// depth skips emit and the Logger method.
const depth = 2

func emit(sev severity, line string) {
	switch sev {
	case sevWarn:
		glog.WarningDepth(depth, line)
	case sevError:
		glog.ErrorDepth(depth, line)
	default:
		glog.InfoDepth(depth, line)
	}
}
