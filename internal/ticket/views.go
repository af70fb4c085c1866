package ticket

import (
	"fmt"
	"strings"

	"github.com/mmeshcher/numbermarket-system/internal/model"
	"github.com/mmeshcher/numbermarket-system/internal/rental"
)

// Представления — декларативные payload'ы для слоя сообщений.
// Тексты пользовательские, на португальском; денежные сообщения всегда
// явно говорят, двигались деньги или нет.

func viewTerms(userID string) model.View {
	return model.View{
		Text: fmt.Sprintf(
			"Olá, <@%s>! Leia os Termos de Uso.\n\n"+
				"Regras do Sistema:\n"+
				"1. O número é único e exclusivo para você.\n"+
				"2. Utilize apenas para fins legais.\n"+
				"3. O código SMS deve ser usado dentro de 10 minutos.\n\n"+
				"Garantia: se o código não chegar, o saldo é estornado.",
			userID),
		Buttons: []model.Button{
			{ID: string(ActionAcceptTerms), Label: "Concordar e Continuar"},
			{ID: string(ActionRejectTerms), Label: "Cancelar"},
		},
	}
}

func viewMenu(userID string, balanceCents int64) model.View {
	return model.View{
		Text: fmt.Sprintf(
			"Painel do Usuário\n\nCliente: <@%s>\nSaldo: %s\n\n"+
				"Clique em Comprar Serviços para abrir o catálogo, escolha a "+
				"plataforma e confirme o pagamento com seu saldo.",
			userID, model.FormatReais(balanceCents)),
		Buttons: []model.Button{
			{ID: string(ActionOpenCatalog), Label: "Comprar Serviços"},
			{ID: string(ActionCloseTicket), Label: "Fechar Ticket"},
		},
		SelectMenus: []model.SelectMenu{{
			ID: "menu_selecao",
			Options: []model.SelectOption{
				{Value: string(ActionOpenHistory), Label: "Histórico de Compras", Description: "Veja seus números comprados e códigos recebidos"},
				{Value: string(ActionRequestDeposit), Label: "Adicionar Saldo", Description: "Adicione saldo via PIX para comprar números"},
			},
		}},
	}
}

func viewCatalog(products []model.Product, page, totalPages int) model.View {
	options := make([]model.SelectOption, 0, len(products))
	for _, p := range products {
		options = append(options, model.SelectOption{
			Value:       p.ID,
			Label:       p.Name,
			Description: fmt.Sprintf("Preço: %s | Estoque: %d", model.FormatReais(p.PriceCents), p.Stock),
		})
	}
	if len(options) == 0 {
		options = append(options, model.SelectOption{Value: "null", Label: "Vazio", Description: "Nenhum serviço aqui."})
	}

	buttons := make([]model.Button, 0, 3)
	if page > 0 {
		buttons = append(buttons, model.Button{ID: string(ActionPagePrev), Label: "Anterior"})
	}
	buttons = append(buttons, model.Button{ID: string(ActionBackMenu), Label: "Menu Inicial"})
	if page < totalPages-1 {
		buttons = append(buttons, model.Button{ID: string(ActionPageNext), Label: "Próximo"})
	}

	return model.View{
		Text: fmt.Sprintf(
			"Catálogo de Serviços (Pág %d/%d)\nSelecione o serviço desejado na lista abaixo.",
			page+1, totalPages),
		Buttons:     buttons,
		SelectMenus: []model.SelectMenu{{ID: "select_servico", Options: options}},
	}
}

func viewConfirm(p model.Product, balanceCents int64) model.View {
	remaining := balanceCents - p.PriceCents
	affordable := remaining >= 0

	text := fmt.Sprintf(
		"Confirmar Pedido: %s\n\nValor: %s\nSeu Saldo: %s\n",
		p.Name, model.FormatReais(p.PriceCents), model.FormatReais(balanceCents))

	var buttons []model.Button
	if affordable {
		text += fmt.Sprintf("Saldo Restante: %s\n\nSaldo Suficiente!", model.FormatReais(remaining))
		buttons = []model.Button{
			{ID: string(ActionConfirmPurchase), Label: "Confirmar Pagamento"},
			{ID: string(ActionCancelPurchase), Label: "Cancelar"},
		}
	} else {
		text += "\nSaldo Insuficiente!"
		buttons = []model.Button{
			{ID: string(ActionRequestDeposit), Label: "Recarregar"},
			{ID: string(ActionCancelPurchase), Label: "Voltar"},
		}
	}

	return model.View{Text: text, Buttons: buttons}
}

func viewAwaitingSMS(act rental.Activation, productName string) model.View {
	return model.View{
		Text: fmt.Sprintf(
			"Sucesso!\nNúmero: %s\nServiço: %s\nID: %s\n\n"+
				"Aguardando... O código SMS aparecerá aqui em breve.",
			act.Number, productName, act.ID),
		Buttons: []model.Button{
			{ID: string(ActionOpenCatalog), Label: "Comprar Mais"},
			{ID: string(ActionCancelRefund), Label: "Cancelar/Reembolso"},
		},
	}
}

func viewCodeReceived(act rental.Activation, productName, code string) model.View {
	return model.View{
		Text: fmt.Sprintf(
			"Sucesso!\nNúmero: %s\nServiço: %s\nID: %s\n\nCódigo Recebido: %s",
			act.Number, productName, act.ID, code),
		Buttons: []model.Button{{ID: string(ActionOpenCatalog), Label: "Comprar Mais"}},
	}
}

func viewRentalExpired(act rental.Activation) model.View {
	return model.View{
		Text: fmt.Sprintf(
			"O número %s expirou sem receber o código. A ativação foi encerrada pelo provedor.",
			act.Number),
		Buttons: []model.Button{{ID: string(ActionBackMenu), Label: "Voltar"}},
	}
}

func viewRefunded(priceCents, newBalanceCents int64) model.View {
	return model.View{
		Text: fmt.Sprintf(
			"SMS Cancelado com Sucesso!\n%s foram estornados ao seu saldo.\n\nNovo Saldo: %s",
			model.FormatReais(priceCents), model.FormatReais(newBalanceCents)),
		Buttons: []model.Button{{ID: string(ActionBackMenu), Label: "Voltar"}},
	}
}

func viewPix(amountCents int64, copyPaste string) model.View {
	return model.View{
		Text: fmt.Sprintf(
			"Depósito PIX\nValor: %s\n\nCopia e Cola:\n%s\n\n"+
				"O pagamento é confirmado automaticamente. O PIX expira em 5 minutos.",
			model.FormatReais(amountCents), copyPaste),
		Buttons: []model.Button{{ID: string(ActionCopyPix), Label: "Copiar Código"}},
	}
}

func viewDepositPrompt() model.View {
	return model.View{
		Text:      "Qual valor deseja depositar? (mínimo R$ 1,00)",
		Ephemeral: true,
	}
}

func viewDepositApproved(amountCents, newBalanceCents int64) model.View {
	return model.View{
		Text: fmt.Sprintf(
			"Pagamento Confirmado! %s foram adicionados ao seu saldo.\nNovo Saldo: %s",
			model.FormatReais(amountCents), model.FormatReais(newBalanceCents)),
		Buttons: []model.Button{{ID: string(ActionBackMenu), Label: "Voltar"}},
	}
}

func viewHistory(records []model.Transaction) model.View {
	var b strings.Builder
	b.WriteString("Seu Histórico de Compras\n\n")

	if len(records) == 0 {
		b.WriteString("Você ainda não realizou nenhuma compra.")
	} else {
		fmt.Fprintf(&b, "Total de transações: %d\n\n", len(records))

		// Последние 10, самые свежие первыми.
		start := len(records) - 10
		if start < 0 {
			start = 0
		}
		recent := records[start:]
		for i := len(recent) - 1; i >= 0; i-- {
			r := recent[i]
			n := len(recent) - i
			if r.Kind == model.KindDeposit {
				fmt.Fprintf(&b, "%d. Depósito PIX | Valor: %s | Status: %s\n", n, model.FormatReais(r.AmountCents), r.Status)
				continue
			}
			fmt.Fprintf(&b, "%d. Plataforma: %s | Valor: %s | Status: %s\n", n, r.Product, model.FormatReais(r.AmountCents), r.Status)
			if r.Number != "" {
				fmt.Fprintf(&b, "   Número: %s\n", r.Number)
			}
			if r.Code != "" {
				fmt.Fprintf(&b, "   Código: %s\n", r.Code)
			}
		}
	}

	return model.View{
		Text:    b.String(),
		Buttons: []model.Button{{ID: string(ActionBackMenu), Label: "Voltar"}},
	}
}

func viewNotice(text string) model.View {
	return model.View{Text: text, Ephemeral: true}
}
