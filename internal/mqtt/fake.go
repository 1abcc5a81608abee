package mqtt

// FakeMessage is a paho.Message for tests.
type FakeMessage struct {
	TopicName string
	Body      []byte
	Acked     bool
}

func (m *FakeMessage) Duplicate() bool   { return false }
func (m *FakeMessage) Qos() byte         { return 1 }
func (m *FakeMessage) Retained() bool    { return false }
func (m *FakeMessage) Topic() string     { return m.TopicName }
func (m *FakeMessage) MessageID() uint16 { return 1 }
func (m *FakeMessage) Payload() []byte   { return m.Body }
func (m *FakeMessage) Ack()              { m.Acked = true }
