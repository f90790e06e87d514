package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"lifesuite/internal/client"
	"lifesuite/internal/config"
)

const help = `Comandos:
  register             crear una cuenta
  verify <token>       verificar email e iniciar sesion
  resend <email>       reenviar el email de verificacion
  login                iniciar sesion
  profile              ver el perfil
  enable-2fa           pedir un codigo de 2FA
  verify-2fa <code>    confirmar el codigo de 2FA
  reset <email>        pedir reseteo de contraseña
  confirm-reset <tok>  elegir una contraseña nueva
  status               estado de la sesion
  logout               cerrar sesion
  exit                 salir`

type shell struct {
	api    *client.APIClient
	guard  *client.Guard
	reader *bufio.Reader
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	api := client.NewAPIClient(cfg.APIBaseURL, client.WithRequestTimeout(cfg.RequestTimeout))
	guard, err := client.NewGuard(
		client.NewFileSessionStore(cfg.SessionFile),
		api,
		client.WithInactivityTimeout(cfg.InactivityTimeout),
		client.WithCheckInterval(cfg.CheckInterval),
		client.WithActivitySample(cfg.ActivitySample),
		client.WithGuardLogger(logger),
		client.WithLogoutHook(func(reason client.LogoutReason) {
			if reason != client.ReasonExplicit {
				fmt.Println("\nLa sesion expiro, inicia sesion de nuevo.")
			}
		}),
	)
	if err != nil {
		log.Fatalf("abrir sesion: %v", err)
	}
	api.UseGuard(guard)
	go guard.Run(ctx)

	sh := &shell{api: api, guard: guard, reader: bufio.NewReader(os.Stdin)}
	fmt.Println("LifeSuite auth shell. Escribe help para ver los comandos.")
	for {
		fmt.Printf("lifesuite [%s]> ", guard.State())
		line, err := sh.reader.ReadString('\n')
		if err != nil {
			return
		}
		guard.Touch()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return
		}
		if err := sh.run(ctx, fields[0], fields[1:]); err != nil {
			fmt.Println("error:", describe(err))
		}
	}
}

func (s *shell) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Println(help)
	case "register":
		email := s.prompt("email")
		password := s.prompt("password")
		name := s.prompt("nombre")
		phone := s.prompt("telefono (opcional)")
		reg, err := s.api.Register(ctx, email, password, name, phone)
		if err != nil {
			return err
		}
		fmt.Printf("Cuenta %s creada. Revisa tu email para verificarla.\n", reg.ID)
		for _, w := range reg.Warnings {
			fmt.Println("aviso:", w)
		}
	case "verify":
		token, err := arg(args, "token")
		if err != nil {
			return err
		}
		res, err := s.api.VerifyEmail(ctx, token)
		if err != nil {
			return err
		}
		if err := s.guard.Start(res.Tokens); err != nil {
			return err
		}
		fmt.Printf("Email verificado. Hola %s.\n", res.User.Name)
	case "resend":
		email, err := arg(args, "email")
		if err != nil {
			return err
		}
		msg, err := s.api.ResendVerification(ctx, email)
		if err != nil {
			return err
		}
		fmt.Println(msg)
	case "login":
		res, err := s.api.Login(ctx, s.prompt("email"), s.prompt("password"))
		if err != nil {
			return err
		}
		if err := s.guard.Start(res.Tokens); err != nil {
			return err
		}
		fmt.Printf("Hola %s.\n", res.User.Name)
	case "profile":
		user, err := s.api.Profile(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("id: %s\nemail: %s\nnombre: %s\nverificado: %t\n2fa: %t\nplan: %s\n",
			user.ID, user.Email, user.Name, user.IsEmailVerified, user.TwoFactorEnabled, user.Plan)
	case "enable-2fa":
		msg, err := s.api.EnableTwoFactor(ctx)
		if err != nil {
			return err
		}
		fmt.Println(msg)
	case "verify-2fa":
		code, err := arg(args, "code")
		if err != nil {
			return err
		}
		msg, err := s.api.VerifyTwoFactor(ctx, code)
		if err != nil {
			return err
		}
		fmt.Println(msg)
	case "reset":
		email, err := arg(args, "email")
		if err != nil {
			return err
		}
		msg, err := s.api.RequestPasswordReset(ctx, email)
		if err != nil {
			return err
		}
		fmt.Println(msg)
	case "confirm-reset":
		token, err := arg(args, "token")
		if err != nil {
			return err
		}
		msg, err := s.api.ConfirmPasswordReset(ctx, token, s.prompt("nueva password"))
		if err != nil {
			return err
		}
		fmt.Println(msg)
	case "status":
		fmt.Printf("estado: %s, ultima actividad: %s\n", s.guard.State(), s.guard.LastActivity().Local().Format("15:04:05"))
	case "logout":
		s.guard.Logout()
		fmt.Println("Sesion cerrada.")
	default:
		fmt.Println("Comando desconocido:", cmd)
	}
	return nil
}

func (s *shell) prompt(label string) string {
	fmt.Printf("%s: ", label)
	line, _ := s.reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func arg(args []string, name string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("falta %s", name)
	}
	return args[0], nil
}

func describe(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Field != "" {
			return fmt.Sprintf("%s (%s)", apiErr.Message, apiErr.Field)
		}
		return apiErr.Message
	case errors.Is(err, client.ErrNotAuthenticated):
		return "inicia sesion primero"
	case errors.Is(err, client.ErrSessionExpired):
		return "la sesion expiro"
	default:
		return err.Error()
	}
}
