package email

import (
	"fmt"
	"strings"
)

// Message is a composed email ready to hand to a Sender.
type Message struct {
	Subject string
	Body    string
}

// MagicLink composes the sign-in email. The cli flag changes the wording for
// terminal logins.
func MagicLink(link string, cli bool) Message {
	target := "Casa"
	if cli {
		target = "the Casa CLI"
	}
	return Message{
		Subject: "Casa login link",
		Body: fmt.Sprintf(
			"Click the link below to log in to %s:\n\n%s\n\nThis link expires in 15 minutes and can only be used once.\n",
			target, link,
		),
	}
}

// Invitation composes the email sent when a project owner invites someone.
func Invitation(projectName, inviter, link string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi,\n\n%s has invited you to collaborate on the house hunt %q.\n\n", inviter, projectName)
	fmt.Fprintf(&b, "Accept the invitation here:\n\n%s\n\n", link)
	b.WriteString("You will need to sign in with this email address to accept.\n")
	return Message{
		Subject: fmt.Sprintf("You're invited to %s", projectName),
		Body:    b.String(),
	}
}

// VisitConfirmation composes the email sent to a visit's creator after the
// visit wizard completes.
func VisitConfirmation(projectName, visitName, address string, photos int, link string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Your visit %q has been saved to %s.\n\n", visitName, projectName)
	if address != "" {
		fmt.Fprintf(&b, "Address: %s\n", address)
	}
	switch photos {
	case 0:
		b.WriteString("No photos were uploaded.\n")
	case 1:
		b.WriteString("1 photo was uploaded.\n")
	default:
		fmt.Fprintf(&b, "%d photos were uploaded.\n", photos)
	}
	fmt.Fprintf(&b, "\nView it here:\n\n%s\n", link)
	return Message{
		Subject: fmt.Sprintf("Visit saved: %s", visitName),
		Body:    b.String(),
	}
}

// Deliver sends m to a single recipient.
func Deliver(s Sender, to string, m Message) error {
	return s.Send([]string{to}, m.Subject, m.Body)
}
