package notify

// SetSender replaces the platform notification call.
func (n *Notifier) SetSender(fn func(title, message, icon string) error) { n.send = fn }
