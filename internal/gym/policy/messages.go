package policy

import (
	"fmt"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// DateLayout is how dates are rendered on the kiosk.
const DateLayout = "02/01/2006"

// SystemErrorMessage is shown whenever the engine could not reach a verdict.
const SystemErrorMessage = "No se pudo validar el acceso. Intentá nuevamente o acercate a recepción."

var denialMessages = map[types.ReasonCode]string{
	types.ReasonNoAssignment:       "Socio no encontrado o sin plan asignado.",
	types.ReasonMembershipInactive: "Tu membresía está inactiva. Consultá en recepción.",
	types.ReasonPaymentBlocked:     "Tu cuota está vencida. Regularizá el pago para ingresar.",
	types.ReasonNoBalance:          "No te quedan visitas disponibles en este ciclo.",
	types.ReasonDuplicateCheckIn:   "Tu ingreso ya fue registrado hace instantes.",
	types.ReasonOutOfWindow:        "Tu plan no permite el ingreso en este horario.",
	types.ReasonSystemError:        SystemErrorMessage,
}

// Message renders the human-readable text for a verdict. Grants on capped
// plans report the visits left; grants on unlimited plans report the renewal
// date.
func Message(v Verdict, w types.CycleWindow, loc *time.Location) string {
	if !v.Granted {
		if msg, ok := denialMessages[v.Reason]; ok {
			return msg
		}
		return SystemErrorMessage
	}

	if v.Remaining == nil {
		if loc == nil {
			loc = time.UTC
		}
		return fmt.Sprintf("Pase Libre activo hasta %s", w.End.In(loc).Format(DateLayout))
	}

	switch n := *v.Remaining; n {
	case 0:
		return "Acceso permitido. Esta es tu última visita del ciclo."
	case 1:
		return "Acceso permitido. Te queda 1 visita en este ciclo."
	default:
		return fmt.Sprintf("Acceso permitido. Te quedan %d visitas en este ciclo.", n)
	}
}
