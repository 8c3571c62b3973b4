package sipua

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
)

// Направления медиа потока
const (
	dirSendRecv = "sendrecv"
	dirSendOnly = "sendonly"
	dirRecvOnly = "recvonly"
	dirInactive = "inactive"
)

// discardPort порт в SDP: медиа плоскости у консоли нет
const discardPort = 9

var directions = []string{dirSendRecv, dirSendOnly, dirRecvOnly, dirInactive}

type codec struct {
	payload   uint8
	name      string
	clockRate uint32
}

var audioCodecs = []codec{
	{payload: 0, name: "PCMU", clockRate: 8000},
	{payload: 8, name: "PCMA", clockRate: 8000},
	{payload: 101, name: "telephone-event", clockRate: 8000},
}

// sdpBuilder собирает предложения и ответы для сигнализации
type sdpBuilder struct {
	host    string
	version uint64
}

func newSDPBuilder(host string) *sdpBuilder {
	return &sdpBuilder{host: host, version: uint64(time.Now().Unix())}
}

func (b *sdpBuilder) session() *sdp.SessionDescription {
	b.version++
	return &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      b.version,
			SessionVersion: b.version,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: b.host,
		},
		SessionName: "sofsip",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: b.host},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}
}

// audioMedia аудио поток, WithCodec сам добавляет формат в m=
func audioMedia(codecs []codec, dir string) *sdp.MediaDescription {
	media := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  "audio",
			Port:   sdp.RangedPort{Value: discardPort},
			Protos: []string{"RTP", "AVP"},
		},
	}
	for _, c := range codecs {
		fmtp := ""
		if c.name == "telephone-event" {
			fmtp = "0-15"
		}
		media = media.WithCodec(c.payload, c.name, c.clockRate, 0, fmtp)
	}
	return media.WithPropertyAttribute(dir)
}

// offer строит предложение с заданным направлением
func (b *sdpBuilder) offer(dir string) (string, error) {
	desc := b.session().WithMedia(audioMedia(audioCodecs, dir))
	data, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("ошибка сборки SDP offer: %w", err)
	}
	return string(data), nil
}

// answer строит ответ на предложение: общие кодеки и встречное направление
func (b *sdpBuilder) answer(offer string) (string, error) {
	var remote sdp.SessionDescription
	if err := remote.Unmarshal([]byte(offer)); err != nil {
		return "", fmt.Errorf("некорректный SDP offer: %w", err)
	}

	var audio *sdp.MediaDescription
	for _, m := range remote.MediaDescriptions {
		if m.MediaName.Media == "audio" {
			audio = m
			break
		}
	}
	if audio == nil {
		return "", errors.New("аудио поток не найден в SDP offer")
	}

	var common []codec
	for _, f := range audio.MediaName.Formats {
		for _, c := range audioCodecs {
			if fmt.Sprint(c.payload) == f {
				common = append(common, c)
			}
		}
	}
	if len(common) == 0 {
		return "", errors.New("нет общих кодеков")
	}

	desc := b.session().WithMedia(audioMedia(common, reverseDirection(mediaDirection(audio))))
	data, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("ошибка сборки SDP answer: %w", err)
	}
	return string(data), nil
}

func mediaDirection(m *sdp.MediaDescription) string {
	for _, d := range directions {
		if _, ok := m.Attribute(d); ok {
			return d
		}
	}
	return dirSendRecv
}

func reverseDirection(dir string) string {
	switch dir {
	case dirSendOnly:
		return dirRecvOnly
	case dirRecvOnly:
		return dirSendOnly
	default:
		return dir
	}
}

// sdpDirection направление первого аудио потока
func sdpDirection(raw string) (string, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return "", fmt.Errorf("некорректный SDP: %w", err)
	}
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media == "audio" {
			return mediaDirection(m), nil
		}
	}
	return dirSendRecv, nil
}

// setDirection заменяет направление во всех потоках
func setDirection(raw, dir string) (string, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return "", fmt.Errorf("некорректный SDP: %w", err)
	}
	for _, m := range desc.MediaDescriptions {
		attrs := m.Attributes[:0]
		for _, a := range m.Attributes {
			if isDirection(a.Key) {
				continue
			}
			attrs = append(attrs, a)
		}
		m.Attributes = append(attrs, sdp.NewPropertyAttribute(dir))
	}
	desc.Origin.SessionVersion++
	data, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("ошибка сборки SDP: %w", err)
	}
	return string(data), nil
}

func isDirection(key string) bool {
	for _, d := range directions {
		if key == d {
			return true
		}
	}
	return false
}

// validateSDP проверяет SDP, полученный от оператора
func validateSDP(raw string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return fmt.Errorf("некорректный SDP: %w", err)
	}
	if len(desc.MediaDescriptions) == 0 {
		return errors.New("в SDP нет медиа потоков")
	}
	return nil
}

// unescapeSDP превращает однострочную запись с \r\n и \n в настоящий SDP
func unescapeSDP(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, `\r\n`, "\n")
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return strings.Join(lines, "\r\n") + "\r\n"
}

// escapeSDP однострочная запись SDP для консоли
func escapeSDP(s string) string {
	s = strings.TrimRight(s, "\r\n")
	s = strings.ReplaceAll(s, "\r\n", `\r\n`)
	return strings.ReplaceAll(s, "\n", `\n`)
}
