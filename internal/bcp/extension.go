package bcp

// Extension lets an observer watch (but never alter the outcome of) the
// data-sending path of a Connection, mirroring the original's optional
// bcp_extender hooks. An Extension that changes fields on the QueueEntry it
// is handed may influence what goes over the wire (the original's extender
// was explicitly allowed to overwrite header metadata before send) but
// cannot veto the send itself.
type Extension struct {
	// BeforeSend is called just before a data packet is serialized and
	// handed to the broadcast medium.
	BeforeSend func(conn *Connection, entry *QueueEntry)

	// AfterSend is called immediately after the send call returns, before
	// the retransmission timer is armed.
	AfterSend func(conn *Connection, entry *QueueEntry)

	// OnReceive is called when a forwarded data packet has been pushed
	// onto the local queue for relaying, before the send timer is
	// (re)armed.
	OnReceive func(conn *Connection, entry *QueueEntry)
}
