package fusion

import "github.com/tmc/langchaingo/prompts"

var fusePrompt = prompts.NewPromptTemplate(`Ты старший аналитик. Перед тобой две итоговые сводки по одной компании, например по самой компании и по её руководителю.
Подготовь единый связный аналитический отчёт. Пиши сразу по существу, без вступлений и рассуждений о себе.

Контекст:
- ИНН: {{.inn}}
- Компания: {{.company}}
- Руководитель: {{.executive}}
- Город: {{.city}}

Требования:
1. Синтез
   - Сведи обе сводки в одну структуру, убери повторы.
   - Противоречия отмечай явно. Основная версия та, у которой больше подтверждений, свежее дата и выше вес источников.
   - Сохраняй смежный контекст: партнёры, суды, география, проекты.
2. Структура
   - Резюме: 5-7 ключевых выводов о компании и руководителе.
   - Ключевые факты по блокам: финансы и право; партнёры и контрагенты; репутация; география и активы; операционная деятельность.
   - Риски и возможности.
   - Хронология, если в тексте есть даты.
   - Заключение.
3. Числовые и табличные данные
   - Если встречается JSON или показатели (выручка, долги, капитал, численность), вынеси ключевые значения и сделай краткие выводы о динамике.
   - Подавай их списком или небольшой таблицей.
4. Стиль: деловой русский язык, списки и подзаголовки, как доклад для совета директоров.

Сводка A:
---
{{.first}}
---

Сводка B:
---
{{.second}}
---`, []string{"inn", "company", "executive", "city", "first", "second"})
