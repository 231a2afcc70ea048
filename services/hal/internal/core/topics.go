package core

import "uarthal/bus"

func T(tokens ...bus.Token) bus.Topic { return bus.T(tokens...) }

func topicConfigHAL() bus.Topic { return T("config", "hal") }

// Topic is hal/cap/<domain>/<kind>/<name> followed by tail, e.g.
// Topic("control", "write") or Topic("event", "tx_complete").
func (a CapAddr) Topic(tail ...bus.Token) bus.Topic {
	return T("hal", "cap", a.Domain, string(a.Kind), a.Name).Append(tail...)
}

// hal/cap/+/+/+/control/+
func ctrlWildcard() bus.Topic { return T("hal", "cap", "+", "+", "+", "control", "+") }
