package configdata

import "fmt"

// MessageLen is the payload size of an output command.
const MessageLen = 8

// EncodePowercell packs output assignments into the 8-byte POWERCELL command:
//
//	byte 0    track outputs 1-8 (bit 7 = output 1)
//	byte 1    bits 7-6 track 9-10, bits 5-0 soft-start 1-6
//	byte 2    bits 7-4 soft-start 7-10, bits 3-0 PWM enable 1-4
//	byte 3    bits 7-4 PWM enable 5-8
//	byte 4-7  PWM duty nibbles, odd output in the high nibble
func EncodePowercell(outputs map[int]OutputConfig) [MessageLen]byte {
	var data [MessageLen]byte

	for n, oc := range outputs {
		if !oc.Enabled || n < 1 || n > 10 {
			continue
		}

		switch oc.Mode {
		case OutputTrack:
			if n <= 8 {
				data[0] |= 1 << (8 - n)
			} else {
				data[1] |= 1 << (16 - n)
			}

		case OutputSoftStart:
			if n <= 6 {
				data[1] |= 1 << (6 - n)
			} else {
				data[2] |= 1 << (14 - n)
			}

		case OutputPWM:
			if n > 8 {
				continue
			}
			if n <= 4 {
				data[2] |= 1 << (4 - n)
			} else {
				data[3] |= 1 << (12 - n)
			}
			duty := oc.PWMDuty
			if duty > MaxPWMDuty {
				duty = MaxPWMDuty
			}
			idx := 4 + (n-1)/2
			if (n-1)%2 == 0 {
				data[idx] |= duty << 4
			} else {
				data[idx] |= duty
			}
		}
	}

	return data
}

// DecodePowercell is the inverse of EncodePowercell. A bit set in several
// groups resolves Track, then Soft-start, then PWM.
func DecodePowercell(data []byte) map[int]OutputConfig {
	var d [MessageLen]byte
	copy(d[:], data)

	outs := make(map[int]OutputConfig)
	for n := 1; n <= 10; n++ {
		var track, soft, pwm bool

		if n <= 8 {
			track = d[0]&(1<<(8-n)) != 0
		} else {
			track = d[1]&(1<<(16-n)) != 0
		}
		if n <= 6 {
			soft = d[1]&(1<<(6-n)) != 0
		} else {
			soft = d[2]&(1<<(14-n)) != 0
		}
		if n <= 4 {
			pwm = d[2]&(1<<(4-n)) != 0
		} else if n <= 8 {
			pwm = d[3]&(1<<(12-n)) != 0
		}

		switch {
		case track:
			outs[n] = OutputConfig{Enabled: true, Mode: OutputTrack}
		case soft:
			outs[n] = OutputConfig{Enabled: true, Mode: OutputSoftStart}
		case pwm:
			idx := 4 + (n-1)/2
			duty := d[idx] & 0x0F
			if (n-1)%2 == 0 {
				duty = d[idx] >> 4
			}
			outs[n] = OutputConfig{Enabled: true, Mode: OutputPWM, PWMDuty: duty}
		}
	}
	return outs
}

// inMOTION per-output byte
const (
	inmotionModifier       = 0x01
	inmotionPersonalityOn  = 0x01 << 2
	inmotionPersonalityTrk = 0x02 << 2
	inmotionPersonalityAll = 0x03 << 2
	inmotionPersonalityMsk = 0x03 << 2
)

// EncodeInmotion packs assignments into one byte per output: bit 0 modifier,
// bits 2-3 personality (ON, TRACK, ALL_MOTORS), bits 4-7 timer (unused, 0).
func EncodeInmotion(outputs map[int]OutputConfig) [MessageLen]byte {
	var data [MessageLen]byte

	for n, oc := range outputs {
		if !oc.Enabled || n < 1 || n > MessageLen {
			continue
		}
		switch oc.Mode {
		case OutputOn:
			data[n-1] = inmotionModifier | inmotionPersonalityOn
		case OutputTrack:
			data[n-1] = inmotionModifier | inmotionPersonalityTrk
		case OutputAllMotors:
			if n <= inmotionRelayCount {
				data[n-1] = inmotionModifier | inmotionPersonalityAll
			}
		}
	}
	return data
}

// DecodeInmotion is the inverse of EncodeInmotion.
func DecodeInmotion(data []byte) map[int]OutputConfig {
	outs := make(map[int]OutputConfig)
	for i := 0; i < len(data) && i < MessageLen; i++ {
		b := data[i]
		if b&inmotionModifier == 0 {
			continue
		}
		var mode OutputMode
		switch b & inmotionPersonalityMsk {
		case inmotionPersonalityOn:
			mode = OutputOn
		case inmotionPersonalityTrk:
			mode = OutputTrack
		case inmotionPersonalityAll:
			mode = OutputAllMotors
		default:
			continue
		}
		outs[i+1] = OutputConfig{Enabled: true, Mode: mode}
	}
	return outs
}

// EncodeOutputs picks the message format of the device.
func EncodeOutputs(dev Device, outputs map[int]OutputConfig) ([MessageLen]byte, error) {
	switch dev.Type {
	case DevicePowercell:
		return EncodePowercell(outputs), nil
	case DeviceInmotion:
		return EncodeInmotion(outputs), nil
	default:
		return [MessageLen]byte{}, fmt.Errorf("unknown device type %q", dev.Type)
	}
}

// DecodeOutputs picks the message format of the device.
func DecodeOutputs(dev Device, data []byte) (map[int]OutputConfig, error) {
	switch dev.Type {
	case DevicePowercell:
		return DecodePowercell(data), nil
	case DeviceInmotion:
		return DecodeInmotion(data), nil
	default:
		return nil, fmt.Errorf("unknown device type %q", dev.Type)
	}
}

// CANMessage is an output command a case makes the controller send.
type CANMessage struct {
	PGNHigh uint8
	PGNLow  uint8
	SA      uint8
	Data    [MessageLen]byte
}

// DefaultCommandSA is the source address the controller uses for output commands.
const DefaultCommandSA = 0x80

// CANMessages lists the output commands of the case, skipping unknown devices
// and devices whose encoded payload is empty.
func (c CaseConfig) CANMessages() []CANMessage {
	var msgs []CANMessage
	for _, do := range c.DeviceOutputs {
		dev, ok := LookupDevice(do.DeviceID)
		if !ok {
			continue
		}
		data, err := EncodeOutputs(dev, do.Outputs)
		if err != nil || data == ([MessageLen]byte{}) {
			continue
		}
		msgs = append(msgs, CANMessage{PGNHigh: dev.PGNHigh, PGNLow: dev.PGNLow, SA: DefaultCommandSA, Data: data})
	}
	return msgs
}
